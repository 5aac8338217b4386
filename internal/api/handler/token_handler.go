package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/attendance-system/internal/core/domain"
	"github.com/99minutos/attendance-system/internal/core/ports"
)

// TokenHandler serves the caller's tokens. The owner is always the
// authenticated user; no route accepts an owner id from the client.
type TokenHandler struct {
	identity ports.IdentityStore
	issuer   ports.TokenIssuer
	resolver ports.TokenResolver
	log      zerolog.Logger
}

func NewTokenHandler(identity ports.IdentityStore, issuer ports.TokenIssuer, resolver ports.TokenResolver, log zerolog.Logger) *TokenHandler {
	return &TokenHandler{identity: identity, issuer: issuer, resolver: resolver, log: log}
}

// List returns the caller's selectable tokens, most recently used first.
//
// @Summary      List selectable tokens
// @Tags         tokens
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  tokenListResponse
// @Failure      401  {object}  errorResponse
// @Router       /v1/tokens [get]
func (h *TokenHandler) List(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}
	tokens, err := h.resolver.ListSelectable(c.Request().Context(), claims.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokenListResponse{Items: newTokenViews(tokens)})
}

// IssueVirtual creates a phone-emulated token for the caller.
//
// @Summary      Issue a virtual token
// @Tags         tokens
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      issueVirtualRequest  false  "Optional display name"
// @Success      201   {object}  tokenView
// @Failure      500   {object}  errorResponse
// @Router       /v1/tokens/virtual [post]
func (h *TokenHandler) IssueVirtual(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}
	// The body is optional; an empty one binds to the zero request.
	var req issueVirtualRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := h.issuer.IssueVirtualToken(c.Request().Context(), claims.UserID, req.DisplayName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newTokenView(token))
}

// RegisterPhysical binds a card id read by an NFC reader to the caller.
//
// @Summary      Register a physical card
// @Tags         tokens
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      registerPhysicalRequest  true  "Card id and options"
// @Success      201   {object}  physicalRegistrationResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /v1/tokens/physical [post]
func (h *TokenHandler) RegisterPhysical(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}
	var req registerPhysicalRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.issuer.RegisterPhysicalToken(c.Request().Context(), ports.RegisterPhysicalInput{
		TokenID:              req.TokenID,
		OwnerID:              claims.UserID,
		DisplayName:          req.DisplayName,
		WithVirtualCompanion: req.WithVirtualCompanion,
	})
	if err != nil && (res == nil || res.Physical == nil) {
		return err
	}

	resp := physicalRegistrationResponse{Physical: newTokenView(res.Physical), Virtual: newTokenView(res.Virtual)}
	if err != nil {
		// The card is registered; only the companion failed.
		h.log.Warn().Err(err).Str("owner_id", claims.UserID).Str("token_id", res.Physical.TokenID).Msg("registered card without companion")
		resp.Warning = "virtual companion could not be issued"
	}
	return c.JSON(http.StatusCreated, resp)
}

// Get returns one of the caller's tokens.
//
// @Summary      Get a token
// @Tags         tokens
// @Produce      json
// @Security     BearerAuth
// @Param        token_id  path      string  true  "Token id"
// @Success      200       {object}  tokenView
// @Failure      404       {object}  errorResponse
// @Router       /v1/tokens/{token_id} [get]
func (h *TokenHandler) Get(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}
	token, err := h.identity.GetToken(c.Request().Context(), c.Param("token_id"))
	if err != nil {
		return err
	}
	// Someone else's token is reported as missing.
	if token.OwnerID != claims.UserID {
		return domain.ErrTokenNotFound
	}
	return c.JSON(http.StatusOK, newTokenView(token))
}

// SetActive enables or disables one of the caller's tokens.
//
// @Summary      Enable or disable a token
// @Tags         tokens
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        token_id  path      string            true  "Token id"
// @Param        body      body      setActiveRequest  true  "Desired state"
// @Success      200       {object}  tokenView
// @Failure      403       {object}  errorResponse
// @Failure      404       {object}  errorResponse
// @Router       /v1/tokens/{token_id} [patch]
func (h *TokenHandler) SetActive(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}
	var req setActiveRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	token, err := h.identity.SetTokenActive(c.Request().Context(), c.Param("token_id"), claims.UserID, *req.Active)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newTokenView(token))
}

// Unlink removes one of the caller's tokens.
//
// @Summary      Unlink a token
// @Tags         tokens
// @Security     BearerAuth
// @Param        token_id  path  string  true  "Token id"
// @Success      204
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/tokens/{token_id} [delete]
func (h *TokenHandler) Unlink(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}
	if err := h.identity.UnlinkToken(c.Request().Context(), c.Param("token_id"), claims.UserID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Active resolves the token a check-in would use right now.
//
// @Summary      Resolve the active token
// @Tags         tokens
// @Produce      json
// @Security     BearerAuth
// @Param        token_id  query     string  false  "Explicit token id"
// @Success      200       {object}  tokenView
// @Failure      403       {object}  errorResponse
// @Failure      422       {object}  errorResponse
// @Router       /v1/tokens/active [get]
func (h *TokenHandler) Active(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}
	token, err := h.resolver.ResolveActiveToken(c.Request().Context(), claims.UserID, c.QueryParam("token_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newTokenView(token))
}
