package supabase

import (
	"fmt"
	"time"

	"github.com/supabase-community/gotrue-go/types"
)

// Session is the credential pair issued by the identity provider, plus
// the identity it belongs to.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	Email        string
}

// SignIn authenticates with email and password and binds the REST layer
// to the issued token.
func (c *Client) SignIn(email, password string) (Session, error) {
	resp, err := c.base.Auth.SignInWithEmailPassword(email, password)
	if err != nil {
		return Session{}, fmt.Errorf("sign in: %w", err)
	}

	sess := sessionFromToken(resp)
	c.BindToken(sess.AccessToken)
	return sess, nil
}

// Refresh exchanges the refresh token for a fresh credential pair and
// rebinds the REST layer.
func (c *Client) Refresh(refreshToken string) (Session, error) {
	resp, err := c.base.Auth.RefreshToken(refreshToken)
	if err != nil {
		return Session{}, fmt.Errorf("refresh session: %w", err)
	}

	sess := sessionFromToken(resp)
	c.BindToken(sess.AccessToken)
	return sess, nil
}

// CurrentUser validates an access token against the identity provider
// and returns the user id and email it belongs to.
func (c *Client) CurrentUser(accessToken string) (string, string, error) {
	user, err := c.base.Auth.WithToken(accessToken).GetUser()
	if err != nil {
		return "", "", fmt.Errorf("get user: %w", err)
	}
	return user.ID.String(), user.Email, nil
}

// SignOut revokes the session server-side.
func (c *Client) SignOut(accessToken string) error {
	if err := c.base.Auth.WithToken(accessToken).Logout(); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func sessionFromToken(resp *types.TokenResponse) Session {
	return Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		UserID:       resp.User.ID.String(),
		Email:        resp.User.Email,
	}
}
