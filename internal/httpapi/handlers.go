package httpapi

import (
	"net/http"

	"justping.io/internal/auth"
	"justping.io/internal/obs"
)

type registerRequest struct {
	BusinessName string `json:"businessName" validate:"required"`
	Description  string `json:"description"`
	Website      string `json:"website"`
	Industry     string `json:"industry"`
	Email        string `json:"email" validate:"required,email"`
	FirstName    string `json:"firstName" validate:"required"`
	LastName     string `json:"lastName" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

type loginResponse struct {
	User         *auth.User         `json:"user"`
	Roles        []auth.Role        `json:"roles"`
	Permissions  auth.PermissionMap `json:"permissions"`
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
	ExpiresIn    int64              `json:"expiresIn"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// resetRequestedMessage is returned whether or not the email exists.
const resetRequestedMessage = "If an account exists for that email, a password reset link has been sent."

func (a *API) bind(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := decodeJSON(r, req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return false
	}
	if err := a.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.bind(w, r, &req) {
		return
	}
	result, err := a.svc.Register(r.Context(), auth.RegisterInput{
		BusinessName: req.BusinessName,
		Description:  req.Description,
		Website:      req.Website,
		Industry:     req.Industry,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	})
	if err != nil {
		a.respondDomainError(w, err)
		return
	}
	obs.RecordRegistration()
	// The raw reset token travels only through the email side channel; the
	// response carries none of it.
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "Registration successful. Check your email to set your password.",
		"business": result.Business,
		"user":     result.User,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.bind(w, r, &req) {
		return
	}
	result, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.RecordLogin("failure")
		a.respondDomainError(w, err)
		return
	}
	obs.RecordLogin("success")
	writeJSON(w, http.StatusOK, loginResponse{
		User:         result.User,
		Roles:        result.Roles,
		Permissions:  result.Permissions,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		ExpiresIn:    result.Tokens.ExpiresIn,
	})
}

func (a *API) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !a.bind(w, r, &req) {
		return
	}
	result, err := a.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.respondDomainError(w, err)
		return
	}
	obs.RecordTokenRefresh()
	writeJSON(w, http.StatusOK, loginResponse{
		User:         result.User,
		Roles:        result.Roles,
		Permissions:  result.Permissions,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		ExpiresIn:    result.Tokens.ExpiresIn,
	})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !a.bind(w, r, &req) {
		return
	}
	// Same response shape regardless of outcome: the endpoint must not
	// reveal whether the email exists.
	_ = a.svc.RequestPasswordReset(r.Context(), req.Email)
	writeJSON(w, http.StatusOK, messageResponse{Message: resetRequestedMessage})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !a.bind(w, r, &req) {
		return
	}
	if err := a.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		a.respondDomainError(w, err)
		return
	}
	obs.RecordRevocation("version")
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password has been reset. You can now sign in."})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	account, err := a.svc.CurrentUser(r.Context(), principal.UserID)
	if err != nil {
		a.respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req changePasswordRequest
	if !a.bind(w, r, &req) {
		return
	}
	if err := a.svc.ChangePassword(r.Context(), principal.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		a.respondDomainError(w, err)
		return
	}
	obs.RecordRevocation("version")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := a.svc.Logout(r.Context(), token); err != nil {
		a.respondDomainError(w, err)
		return
	}
	obs.RecordRevocation("blacklist")
	w.WriteHeader(http.StatusNoContent)
}
