package api

import (
	"errors"
	"net/http"

	"pipewatch/services/auth"
	"pipewatch/services/playback"
)

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Field    string `json:"field"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Email == "" || req.Password == "" || req.Field == "" {
		respondError(w, http.StatusBadRequest, errors.New("email, password, and field are required"))
		return
	}

	// Resolve the readings table up front so a typo'd field fails login
	// instead of producing a token no endpoint can serve.
	if _, err := playback.TableForField(req.Field); err != nil {
		respondError(w, http.StatusBadRequest, auth.ErrUnknownField)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	user, err := a.users.Login(ctx, req.Email, req.Password, req.Field)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			respondError(w, http.StatusUnauthorized, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	token, err := a.tokens.Issue(user.ID, user.Role, user.FieldID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful",
		"token":   token,
		"user":    user,
	})
}

func (a *API) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, errors.New("unauthorized"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	user, err := a.users.GetByID(ctx, identity.UserID)
	if err != nil {
		respondError(w, http.StatusNotFound, errors.New("user not found"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}
