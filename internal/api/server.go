// Package api exposes the scoring engine over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/poweranger/trade-optimizer/internal/domain"
	"github.com/poweranger/trade-optimizer/internal/engine"
	"github.com/poweranger/trade-optimizer/internal/monitoring"
	"github.com/poweranger/trade-optimizer/internal/ranking"
	"github.com/poweranger/trade-optimizer/internal/store"
	"github.com/poweranger/trade-optimizer/internal/traderr"
)

const defaultMaxResults = 10

// Deps bundles everything the router needs.
type Deps struct {
	Engine         *engine.Engine
	Repo           *store.Repository
	Logger         *monitoring.Logger
	Metrics        *monitoring.Metrics
	Limiter        *IPRateLimiter
	AllowedOrigins []string
}

// rankRequest is the dealer-ranking payload. Weights are optional; absent
// weights fall back to the documented defaults.
type rankRequest struct {
	ProductCategoryID    int64            `json:"product_category_id"`
	DestinationCountryID int64            `json:"destination_country_id"`
	MaxResults           int              `json:"max_results"`
	Weights              *ranking.Weights `json:"weights"`
}

// Router builds the gin engine with middleware and all routes.
func Router(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogging(deps.Logger, deps.Metrics))
	if deps.Limiter != nil {
		r.Use(deps.Limiter.Middleware())
	}

	corsConfig := cors.DefaultConfig()
	if len(deps.AllowedOrigins) == 1 && deps.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = deps.AllowedOrigins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"metrics":   deps.Metrics.Snapshot(),
		})
	})

	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Metrics.Snapshot())
	})

	predictions := r.Group("/api/predictions")
	{
		predictions.POST("/predict-trade", func(c *gin.Context) {
			var req engine.PredictionRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, deps, traderr.InvalidInput("body", err.Error()))
				return
			}

			result, err := deps.Engine.Predict(c.Request.Context(), req)
			if err != nil {
				respondError(c, deps, err)
				return
			}
			c.JSON(http.StatusOK, result)
		})

		predictions.POST("/rank-dealers", func(c *gin.Context) {
			var req rankRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, deps, traderr.InvalidInput("body", err.Error()))
				return
			}

			weights := ranking.DefaultWeights()
			if req.Weights != nil {
				weights = *req.Weights
			}
			maxResults := req.MaxResults
			if maxResults == 0 {
				maxResults = defaultMaxResults
			}

			filters := ranking.Filters{
				ProductCategoryID:    req.ProductCategoryID,
				DestinationCountryID: req.DestinationCountryID,
			}
			scores, err := deps.Engine.RankDealers(filters, weights, maxResults)
			if err != nil {
				respondError(c, deps, err)
				return
			}
			c.JSON(http.StatusOK, scores)
		})

		predictions.GET("/country-analysis", func(c *gin.Context) {
			scores, err := deps.Engine.AnalyzeCountries()
			if err != nil {
				respondError(c, deps, err)
				return
			}
			c.JSON(http.StatusOK, scores)
		})

		predictions.GET("/model-performance", func(c *gin.Context) {
			diag, err := deps.Engine.Diagnostics()
			if err != nil {
				respondError(c, deps, err)
				return
			}
			c.JSON(http.StatusOK, diag)
		})

		predictions.POST("/retrain", func(c *gin.Context) {
			diag, err := deps.Engine.Retrain(c.Request.Context())
			if err != nil {
				respondError(c, deps, err)
				return
			}
			c.JSON(http.StatusOK, diag)
		})
	}

	data := r.Group("/api/data")
	{
		data.GET("/countries", func(c *gin.Context) {
			countries, err := deps.Repo.Countries()
			if err != nil {
				respondError(c, deps, err)
				return
			}
			c.JSON(http.StatusOK, countries)
		})

		data.GET("/products", func(c *gin.Context) {
			var categoryID int64
			if raw := c.Query("category_id"); raw != "" {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					respondError(c, deps, traderr.InvalidInput("category_id", "must be an integer"))
					return
				}
				categoryID = id
			}
			products, err := deps.Repo.Products(categoryID)
			if err != nil {
				respondError(c, deps, err)
				return
			}
			c.JSON(http.StatusOK, products)
		})

		data.GET("/product-categories", func(c *gin.Context) {
			cats, err := deps.Repo.ProductCategories()
			if err != nil {
				respondError(c, deps, err)
				return
			}
			c.JSON(http.StatusOK, cats)
		})

		data.GET("/tariffs", func(c *gin.Context) {
			tariffs, err := deps.Repo.Tariffs()
			if err != nil {
				respondError(c, deps, err)
				return
			}
			c.JSON(http.StatusOK, tariffs)
		})

		data.GET("/dealers", func(c *gin.Context) {
			dealers, err := deps.Repo.Dealers()
			if err != nil {
				respondError(c, deps, err)
				return
			}
			c.JSON(http.StatusOK, dealers)
		})

		data.GET("/transactions", func(c *gin.Context) {
			limit := 100
			if raw := c.Query("limit"); raw != "" {
				l, err := strconv.Atoi(raw)
				if err != nil || l < 1 {
					respondError(c, deps, traderr.InvalidInput("limit", "must be a positive integer"))
					return
				}
				limit = l
			}
			txs, err := deps.Repo.Transactions(limit)
			if err != nil {
				respondError(c, deps, err)
				return
			}
			c.JSON(http.StatusOK, txs)
		})

		data.POST("/transactions", func(c *gin.Context) {
			var tx domain.Transaction
			if err := c.ShouldBindJSON(&tx); err != nil {
				respondError(c, deps, traderr.InvalidInput("body", err.Error()))
				return
			}
			if !tx.Mode.Valid() {
				respondError(c, deps, traderr.InvalidInput("transport_mode", "must be one of sea, air, road, rail"))
				return
			}
			if tx.Quantity <= 0 {
				respondError(c, deps, traderr.InvalidInput("quantity", "must be a positive integer"))
				return
			}

			id, err := deps.Repo.InsertTransaction(tx)
			if err != nil {
				respondError(c, deps, err)
				return
			}
			c.JSON(http.StatusCreated, gin.H{"id": id})
		})
	}

	return r
}

// respondError maps taxonomy errors onto HTTP statuses; everything else is
// an opaque 500.
func respondError(c *gin.Context, deps Deps, err error) {
	status := traderr.StatusOf(err)
	deps.Logger.APIErrorLogger(err, c.Request.Method, c.FullPath(), status)

	body := gin.H{"error": err.Error()}
	if code := traderr.CodeOf(err); code != "" {
		body["code"] = string(code)
	}
	if status == http.StatusInternalServerError {
		body["error"] = "internal server error"
	}
	c.JSON(status, body)
}
