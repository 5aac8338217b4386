package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// CatalogHandler serves the subject and room pickers.
type CatalogHandler struct {
	resp catalogResponse
}

func NewCatalogHandler(subjects, rooms []string) *CatalogHandler {
	return &CatalogHandler{resp: catalogResponse{Subjects: subjects, Rooms: rooms}}
}

// Get returns the configured subjects and rooms.
//
// @Summary      Subjects and rooms
// @Tags         catalog
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  catalogResponse
// @Router       /v1/catalog [get]
func (h *CatalogHandler) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, h.resp)
}
