// detective-arena/services/identity.go
package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// IdentityGateway is a read-only client for the profile service, used when a
// participant registers before the sync worker has mirrored their row.
// Resolved profiles are cached; the sync worker remains the source of truth
// for long-lived data.
type IdentityGateway struct {
	BaseURL string
	Token   string
	Client  *http.Client

	mu    sync.Mutex
	cache map[int64]*IdentityProfile
}

type IdentityProfile struct {
	ID          int64   `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"profile_picture_url,omitempty"`
}

func NewIdentityGateway(baseURL, token string) *IdentityGateway {
	return &IdentityGateway{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Resolve fetches the display profile for a numeric user id.
func (g *IdentityGateway) Resolve(userID int64) (*IdentityProfile, error) {
	g.mu.Lock()
	if p, ok := g.cache[userID]; ok {
		g.mu.Unlock()
		return p, nil
	}
	g.mu.Unlock()

	url := fmt.Sprintf("%s/api/v1/public/profiles/%d", g.BaseURL, userID)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Service-Token", g.Token)

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK {
		log.Printf("IdentityGateway profile lookup returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("identity lookup failed: %d", resp.StatusCode)
	}

	var out IdentityProfile
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}

	g.mu.Lock()
	if g.cache == nil {
		g.cache = make(map[int64]*IdentityProfile)
	}
	g.cache[userID] = &out
	g.mu.Unlock()

	return &out, nil
}
