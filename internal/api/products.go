package api

import (
	"github.com/labstack/echo/v4"

	"storefront-service/internal/service"
)

type ProductHandler struct {
	productService *service.ProductService
}

func NewProductHandler(productService *service.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// ListProducts lists the catalog --> GET /products
// Customers see active products only; admins can pass ?all=true.
func (h *ProductHandler) ListProducts(c echo.Context) error {
	activeOnly := c.QueryParam("all") != "true"
	products, err := h.productService.ListProducts(c.Request().Context(), activeOnly)
	if err != nil {
		return httpError(c, err)
	}

	lowStock := 0
	for _, p := range products {
		if p.IsLowStock() {
			lowStock++
		}
	}
	return c.JSON(200, map[string]any{
		"count":     len(products),
		"low_stock": lowStock,
		"products":  products,
	})
}

// GetProduct fetches one product --> GET /products/:id
func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	product, err := h.productService.GetProduct(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(200, product)
}

// CreateProduct adds a product to the catalog --> POST /products
func (h *ProductHandler) CreateProduct(c echo.Context) error {
	claims := claimsFrom(c)

	req := service.CreateProductInput{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	product, err := h.productService.CreateProduct(c.Request().Context(), claims.UserID, req)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(201, product)
}

// UpdateProduct edits descriptive fields --> PUT /products/:id
func (h *ProductHandler) UpdateProduct(c echo.Context) error {
	claims := claimsFrom(c)
	id, err := paramID(c)
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	req := service.UpdateProductInput{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	product, err := h.productService.UpdateProduct(c.Request().Context(), claims.UserID, id, req)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(200, product)
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

// Restock increases on-hand stock --> POST /products/:id/restock
func (h *ProductHandler) Restock(c echo.Context) error {
	claims := claimsFrom(c)
	id, err := paramID(c)
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	req := restockRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	product, err := h.productService.Restock(c.Request().Context(), claims.UserID, id, req.Quantity)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(200, product)
}
