package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/teacheasy/internal/domain/category"
	"github.com/xenking/teacheasy/internal/domain/product"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	h.writeProductList(w, r, false)
}

func (h *Handler) adminListProducts(w http.ResponseWriter, r *http.Request) {
	h.writeProductList(w, r, true)
}

func (h *Handler) writeProductList(w http.ResponseWriter, r *http.Request, includeInactive bool) {
	f, err := productFilter(r)
	if err != nil {
		fail(w, r, "list products", err)
		return
	}
	f.IncludeInactive = includeInactive
	f.Normalize()

	products, total, err := h.Products.List(r.Context(), f)
	if err != nil {
		fail(w, r, "list products", err)
		return
	}
	respond(w, http.StatusOK, "products retrieved", paged(f.Page, f.PageSize, total, h.encodeProducts(products)))
}

func productFilter(r *http.Request) (product.Filter, error) {
	q := r.URL.Query()
	f := product.Filter{
		CategoryID: q.Get("category"),
		Search:     q.Get("search"),
		InStock:    q.Get("in_stock") == "true",
		Sort:       q.Get("sort"),
	}
	var err error
	if f.Page, err = queryInt(r, "page"); err != nil {
		return f, err
	}
	if f.PageSize, err = queryInt(r, "page_size"); err != nil {
		return f, err
	}
	if f.MinPrice, err = queryDecimal(r, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = queryDecimal(r, "max_price"); err != nil {
		return f, err
	}
	return f, nil
}

func queryDecimal(r *http.Request, name string) (*decimal.Decimal, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, badRequest("%s must be a number", name)
	}
	return &d, nil
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		fail(w, r, "get product", err)
		return
	}
	respond(w, http.StatusOK, "product retrieved", func(e *jx.Encoder) {
		h.encodeProduct(e, p)
	})
}

type productRequest struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Slug          string          `json:"slug" validate:"max=200"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	DiscountPrice decimal.Decimal `json:"discount_price"`
	CategoryID    string          `json:"category_id" validate:"required"`
	Images        []string        `json:"images"`
	Stock         int             `json:"stock" validate:"gte=0"`
	IsActive      *bool           `json:"is_active"`
	GradeLevels   []string        `json:"grade_levels"`
	Tags          []string        `json:"tags"`
}

func (req *productRequest) apply(p *product.Product) {
	p.Name = req.Name
	p.Slug = req.Slug
	p.Description = req.Description
	p.Price = req.Price
	p.DiscountPrice = req.DiscountPrice
	p.CategoryID = req.CategoryID
	p.Images = req.Images
	p.Stock = req.Stock
	p.GradeLevels = req.GradeLevels
	p.Tags = req.Tags
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "create product", err)
		return
	}
	p := &product.Product{IsActive: true}
	req.apply(p)
	if err := h.Products.Create(r.Context(), p); err != nil {
		fail(w, r, "create product", err)
		return
	}
	respond(w, http.StatusCreated, "product created", func(e *jx.Encoder) {
		h.encodeProduct(e, p)
	})
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "update product", err)
		return
	}
	p, err := h.Products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "update product", err)
		return
	}
	req.apply(p)
	if err := h.Products.Update(r.Context(), p); err != nil {
		fail(w, r, "update product", err)
		return
	}
	respond(w, http.StatusOK, "product updated", func(e *jx.Encoder) {
		h.encodeProduct(e, p)
	})
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, "delete product", err)
		return
	}
	respond(w, http.StatusOK, "product deleted", nil)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Categories.List(r.Context())
	if err != nil {
		fail(w, r, "list categories", err)
		return
	}
	respond(w, http.StatusOK, "categories retrieved", func(e *jx.Encoder) {
		e.ArrStart()
		for i := range categories {
			encodeCategory(e, &categories[i])
		}
		e.ArrEnd()
	})
}

type categoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Slug        string `json:"slug" validate:"max=100"`
	Description string `json:"description"`
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "create category", err)
		return
	}
	c := &category.Category{Name: req.Name, Slug: req.Slug, Description: req.Description}
	if err := h.Categories.Create(r.Context(), c); err != nil {
		fail(w, r, "create category", err)
		return
	}
	respond(w, http.StatusCreated, "category created", func(e *jx.Encoder) {
		encodeCategory(e, c)
	})
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "update category", err)
		return
	}
	c, err := h.Categories.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "update category", err)
		return
	}
	c.Name, c.Slug, c.Description = req.Name, req.Slug, req.Description
	if err := h.Categories.Update(r.Context(), c); err != nil {
		fail(w, r, "update category", err)
		return
	}
	respond(w, http.StatusOK, "category updated", func(e *jx.Encoder) {
		encodeCategory(e, c)
	})
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.Categories.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, "delete category", err)
		return
	}
	respond(w, http.StatusOK, "category deleted", nil)
}
