package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ozolins/attachup/internal/client/attachment"
	"github.com/ozolins/attachup/internal/client/channel"
)

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// authenticate exchanges the password for an access token.
func (a *App) authenticate(ctx context.Context, password []byte) (string, error) {
	body, err := json.Marshal(loginRequest{Password: string(password)})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.ServerBaseURL+"/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed: %s", resp.Status)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", err
	}
	return lr.Token, nil
}

// Login prompts for the password, authenticates and wires the upload
// transports. The socket channel is best effort: when the dial fails the
// plain channel still carries every request.
func (a *App) Login(ctx context.Context) {
	password, err := GetPassword(a.out)
	if err != nil {
		fmt.Fprintln(a.out, "Error reading password:", err)
		return
	}

	token, err := a.authenticate(ctx, password)
	for i := range password {
		password[i] = 0
	}
	if err != nil {
		fmt.Fprintln(a.out, "Login error:", err)
		return
	}

	a.token = token
	a.connectTransports(ctx)

	fmt.Fprintln(a.out, "Logged in.")
}

// connectTransports builds the dual-channel requester and the uploader for
// the current token.
func (a *App) connectTransports(ctx context.Context) {
	if a.sock != nil {
		a.sock.Close()
		a.sock = nil
	}

	if !a.config.ForcePlain {
		sock := channel.NewWSChannel(a.config.SocketURL, a.token)
		if err := sock.Connect(ctx); err != nil {
			a.logger.Warn(ctx, "socket channel unavailable, using plain HTTP", "error", err)
		} else {
			a.sock = sock
		}
	}

	plain := channel.NewHTTPChannel(a.config.ServerBaseURL, a.token, a.httpClient)

	var requester *channel.DualRequester
	if a.sock != nil {
		requester = channel.NewDualRequester(a.sock, plain)
	} else {
		requester = channel.NewDualRequester(nil, plain)
	}
	requester.ForcePlain = a.config.ForcePlain

	a.uploader = attachment.NewUploader(requester, a.httpClient, a.config.DirectUploadURL, a.logger)
}
