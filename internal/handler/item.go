package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/weighbridge-ops/internal/apperr"
	"github.com/iliyamo/weighbridge-ops/internal/model"
	"github.com/iliyamo/weighbridge-ops/internal/repository"
)

// ItemHandler serves the catalogue endpoints under /api/items.
type ItemHandler struct {
	Items *repository.ItemRepo
}

func NewItemHandler(items *repository.ItemRepo) *ItemHandler { return &ItemHandler{Items: items} }

var errItemNotFound = apperr.NotFound("Item not found")

// itemReq is shared by create and update; on update absent fields keep
// their stored value.
type itemReq struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Quantity    *int    `json:"quantity"`
}

func (r itemReq) validate(partial bool) map[string]string {
	fields := map[string]string{}
	if r.Name != nil || !partial {
		switch n := len([]rune(deref(r.Name))); {
		case n < 1:
			fields["name"] = "Name is required"
		case n > 255:
			fields["name"] = "Name must be less than 255 characters"
		}
	}
	if r.Description != nil || !partial {
		switch n := len([]rune(deref(r.Description))); {
		case n < 1:
			fields["description"] = "Description is required"
		case n > 1000:
			fields["description"] = "Description must be less than 1000 characters"
		}
	}
	if r.Quantity != nil && *r.Quantity < 0 {
		fields["quantity"] = "Quantity must be a non-negative integer"
	} else if r.Quantity == nil && !partial {
		fields["quantity"] = "Quantity is required"
	}
	return fields
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// List handles GET /api/items, newest first.
func (h *ItemHandler) List(c echo.Context) error {
	page, limit, offset := pagination(c)
	ctx, cancel := dbContext(c)
	defer cancel()

	items, total, err := h.Items.List(ctx, c.QueryParam("search"), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items":       items,
		"totalPages":  totalPages(total, limit),
		"currentPage": page,
		"totalItems":  total,
	})
}

func (h *ItemHandler) Get(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()

	it, err := h.Items.GetByID(ctx, c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return errItemNotFound
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, it)
}

func (h *ItemHandler) Create(c echo.Context) error {
	var req itemReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if fields := req.validate(false); len(fields) > 0 {
		return apperr.Validation("Validation failed", fields)
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	it := &model.Item{Name: deref(req.Name), Description: deref(req.Description), Quantity: *req.Quantity}
	if err := h.Items.Create(ctx, it); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "Item created successfully", "item": it})
}

func (h *ItemHandler) Update(c echo.Context) error {
	var req itemReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if fields := req.validate(true); len(fields) > 0 {
		return apperr.Validation("Validation failed", fields)
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	it, err := h.Items.GetByID(ctx, c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return errItemNotFound
	}
	if err != nil {
		return err
	}
	if req.Name != nil {
		it.Name = deref(req.Name)
	}
	if req.Description != nil {
		it.Description = deref(req.Description)
	}
	if req.Quantity != nil {
		it.Quantity = *req.Quantity
	}
	if err := h.Items.Update(ctx, it); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errItemNotFound
		}
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Item updated successfully", "item": it})
}

func (h *ItemHandler) Delete(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()

	if err := h.Items.Delete(ctx, c.Param("id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errItemNotFound
		}
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Item deleted successfully"})
}
