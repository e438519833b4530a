package services

import (
	"errors"
	"log"
	"strconv"
	"strings"

	"detective-arena/engine"
	"detective-arena/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ArenaService exposes the live game over HTTP. All game state lives in the
// engine; the DB is only consulted for identity snapshots and finished-cycle
// history.
type ArenaService struct {
	DB       *gorm.DB
	Engine   *engine.Engine
	Identity *IdentityGateway // optional; resolves profiles not yet mirrored
}

func NewArenaService(db *gorm.DB, eng *engine.Engine, identity *IdentityGateway) *ArenaService {
	return &ArenaService{DB: db, Engine: eng, Identity: identity}
}

// engineError maps engine sentinels onto the HTTP status taxonomy.
func engineError(c *fiber.Ctx, err error) error {
	var status int
	var code string
	switch {
	case errors.Is(err, engine.ErrValidation):
		status, code = fiber.StatusBadRequest, "validation"
	case errors.Is(err, engine.ErrNoCycle):
		status, code = fiber.StatusNotFound, "no_cycle"
	case errors.Is(err, engine.ErrNotFound):
		status, code = fiber.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrRegistrationClosed):
		status, code = fiber.StatusConflict, "registration_closed"
	case errors.Is(err, engine.ErrCycleActive):
		status, code = fiber.StatusConflict, "cycle_active"
	case errors.Is(err, engine.ErrLocked):
		status, code = fiber.StatusConflict, "locked"
	case errors.Is(err, engine.ErrNotParticipant):
		status, code = fiber.StatusForbidden, "not_participant"
	case errors.Is(err, engine.ErrWrongTurn):
		status, code = fiber.StatusForbidden, "wrong_turn"
	case errors.Is(err, engine.ErrNotExternal):
		status, code = fiber.StatusForbidden, "not_external"
	case errors.Is(err, engine.ErrForbidden):
		status, code = fiber.StatusForbidden, "forbidden"
	case errors.Is(err, engine.ErrRateLimited):
		status, code = fiber.StatusTooManyRequests, "rate_limited"
	default:
		log.Printf("❌ [ARENA] Unexpected engine error: %v", err)
		status, code = fiber.StatusInternalServerError, "internal"
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": code})
}

func userID(c *fiber.Ctx) int64 {
	if v, ok := c.Locals("user_id").(int64); ok {
		return v
	}
	return 0
}

// State answers the client poll: phase, countdowns, active matches, results.
func (s *ArenaService) State(c *fiber.Ctx) error {
	return c.JSON(s.Engine.Poll(userID(c)))
}

// Register enrolls the caller into the open cycle. Display name and avatar
// come from the local user snapshot when present, falling back to the gateway
// headers.
func (s *ArenaService) Register(c *fiber.Ctx) error {
	id := userID(c)
	handle, _ := c.Locals("user_name").(string)
	displayName := handle
	var avatarURL string

	var u models.ArenaUser
	if err := s.DB.First(&u, "id = ?", id).Error; err == nil {
		if u.IsBanned {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "account is banned from the arena", "code": "banned"})
		}
		if u.Handle != "" {
			handle = u.Handle
		}
		if u.DisplayName != "" {
			displayName = u.DisplayName
		}
		if u.AvatarURL != nil {
			avatarURL = *u.AvatarURL
		}
	} else if s.Identity != nil {
		// Not mirrored yet; ask the profile service directly.
		if p, rerr := s.Identity.Resolve(id); rerr == nil {
			if p.Username != "" {
				handle = p.Username
			}
			if p.DisplayName != "" {
				displayName = p.DisplayName
			}
			if p.AvatarURL != nil {
				avatarURL = *p.AvatarURL
			}
		}
	}
	if displayName == "" {
		displayName = "player-" + strconv.FormatInt(id, 10)
	}

	p, err := s.Engine.Register(id, handle, displayName, avatarURL)
	if err != nil {
		return engineError(c, err)
	}
	log.Printf("🎮 [ARENA] User %d registered as %q", id, p.DisplayName)
	return c.JSON(fiber.Map{"registered": true, "display_name": p.DisplayName})
}

func (s *ArenaService) Withdraw(c *fiber.Ctx) error {
	if err := s.Engine.Withdraw(userID(c)); err != nil {
		return engineError(c, err)
	}
	return c.JSON(fiber.Map{"withdrawn": true})
}

func (s *ArenaService) Ready(c *fiber.Ctx) error {
	if err := s.Engine.SetReady(userID(c)); err != nil {
		return engineError(c, err)
	}
	return c.JSON(fiber.Map{"ready": true})
}

// Vote records or revises the caller's judgement on one of their matches.
func (s *ArenaService) Vote(c *fiber.Ctx) error {
	matchID := c.Params("id")
	var body struct {
		Vote string `json:"vote"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	v, ok := engine.ParseVote(strings.TrimSpace(body.Vote))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "vote must be \"real\" or \"bot\"", "code": "validation"})
	}
	if err := s.Engine.SetVote(matchID, userID(c), v); err != nil {
		return engineError(c, err)
	}
	return c.JSON(fiber.Map{"vote": v})
}

// Lock finalizes a match early at the caller's request.
func (s *ArenaService) Lock(c *fiber.Ctx) error {
	if err := s.Engine.LockMatch(c.Params("id"), userID(c)); err != nil {
		return engineError(c, err)
	}
	return c.JSON(fiber.Map{"locked": true})
}

// SendMessage appends a chat line to one of the caller's matches.
func (s *ArenaService) SendMessage(c *fiber.Ctx) error {
	var body struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	msg, err := s.Engine.AppendMessage(c.Params("id"), userID(c), body.Text)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(msg)
}

// AgentReply lets an authenticated external controller speak for its persona.
func (s *ArenaService) AgentReply(c *fiber.Ctx) error {
	controllerID, _ := c.Locals("agent_controller_id").(int64)
	personaSlug, _ := c.Locals("agent_persona_slug").(string)

	var body struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	msg, err := s.Engine.AppendAgentReply(c.Params("id"), personaSlug, controllerID, body.Text)
	if err != nil {
		// Agent callers get a narrower status set than participants; a
		// locked match means the slot is closed to them, not a retryable
		// conflict.
		if errors.Is(err, engine.ErrLocked) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error(), "code": "locked"})
		}
		return engineError(c, err)
	}
	return c.JSON(msg)
}

// Leaderboard serves a finished cycle's ranked standings by slug.
func (s *ArenaService) Leaderboard(c *fiber.Ctx) error {
	slug := c.Params("cycle")

	var cycle models.CycleRecord
	if err := s.DB.First(&cycle, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "cycle not found", "code": "not_found"})
		}
		log.Printf("❌ [ARENA] Leaderboard lookup failed for %s: %v", slug, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "leaderboard lookup failed"})
	}

	var rows []models.CycleLeaderboardRow
	if err := s.DB.Where("cycle_id = ?", cycle.ID).Order("rank asc").Find(&rows).Error; err != nil {
		log.Printf("❌ [ARENA] Leaderboard rows failed for %s: %v", slug, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "leaderboard lookup failed"})
	}

	var personas []models.CyclePersonaStat
	_ = s.DB.Where("cycle_id = ?", cycle.ID).Order("rating desc").Find(&personas).Error

	return c.JSON(fiber.Map{
		"cycle":       cycle,
		"leaderboard": rows,
		"personas":    personas,
	})
}

// Career serves a participant's lifetime aggregates.
func (s *ArenaService) Career(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("user"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id", "code": "validation"})
	}
	var u models.ArenaUser
	if err := s.DB.First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found", "code": "not_found"})
		}
		log.Printf("❌ [ARENA] Career lookup failed for %d: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "career lookup failed"})
	}
	return c.JSON(u)
}

// OpenCycle (admin) opens a fresh cycle for registration.
func (s *ArenaService) OpenCycle(c *fiber.Ctx) error {
	var body struct {
		Name         string `json:"name"`
		Rounds       int    `json:"rounds"`
		RoundSeconds int    `json:"round_seconds"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if strings.TrimSpace(body.Name) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required", "code": "validation"})
	}

	cycle, err := s.Engine.OpenCycle(body.Name, body.Rounds, body.RoundSeconds)
	if err != nil {
		return engineError(c, err)
	}
	log.Printf("🆕 [ARENA] Cycle %q opened (slug=%s, rounds=%d)", cycle.Name, cycle.Slug, cycle.TotalRounds)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"cycle_id": cycle.ID,
		"slug":     cycle.Slug,
		"name":     cycle.Name,
		"rounds":   cycle.TotalRounds,
	})
}

// CreatePersona (admin) adds a persona to the catalog and the live roster.
func (s *ArenaService) CreatePersona(c *fiber.Ctx) error {
	var body struct {
		DisplayName  string `json:"display_name"`
		Model        string `json:"model"`
		Style        string `json:"style"`
		External     bool   `json:"external"`
		ControllerID int64  `json:"controller_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if strings.TrimSpace(body.DisplayName) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "display_name is required", "code": "validation"})
	}
	if body.External && body.ControllerID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "external personas require a controller_id", "code": "validation"})
	}

	p := engine.NewPersona(body.DisplayName, body.Model, body.Style, body.External, body.ControllerID)

	record := models.PersonaRecord{
		Slug:         p.Slug,
		DisplayName:  p.DisplayName,
		Model:        p.Model,
		Style:        p.Style,
		External:     p.External,
		ControllerID: p.ControllerID,
		IsActive:     true,
	}
	if err := s.DB.Create(&record).Error; err != nil {
		log.Printf("❌ [ARENA] Failed to persist persona %s: %v", p.Slug, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create persona"})
	}

	s.Engine.RegisterPersona(p)
	log.Printf("🤖 [ARENA] Persona %q registered (slug=%s, external=%t)", p.DisplayName, p.Slug, p.External)
	return c.Status(fiber.StatusCreated).JSON(record)
}

// LoadPersonas hydrates the engine roster from the catalog at startup.
func (s *ArenaService) LoadPersonas() error {
	var records []models.PersonaRecord
	if err := s.DB.Where("is_active = ?", true).Find(&records).Error; err != nil {
		return err
	}
	for _, r := range records {
		s.Engine.RegisterPersona(engine.Persona{
			Slug:         r.Slug,
			DisplayName:  r.DisplayName,
			Model:        r.Model,
			Style:        r.Style,
			External:     r.External,
			ControllerID: r.ControllerID,
		})
	}
	log.Printf("🤖 [ARENA] Loaded %d personas into the roster", len(records))
	return nil
}
