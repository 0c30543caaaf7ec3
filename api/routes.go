// Package api registers the REST surface under /api/v1 plus the MCP HTTP
// transports, grounded on the teacher's api/routes.go route-group idiom.
package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailstack/internal/mcp"
	"github.com/customeros/mailstack/internal/middleware"
	"github.com/customeros/mailstack/internal/ratelimit"
)

// RegisterRoutes wires every REST handler plus the MCP HTTP/SSE transport
// onto router, behind API-key auth and the rate limiter.
func RegisterRoutes(
	ctx context.Context,
	router *gin.Engine,
	svc *mcp.Services,
	registry *mcp.Registry,
	transport *mcp.HTTPTransport,
	apiKey string,
	limiter *ratelimit.Limiter,
) {
	router.Use(middleware.CustomContextMiddleware())
	if limiter != nil {
		router.Use(limiter.Middleware())
	}

	router.GET("/healthz", healthHandler)

	authed := router.Group("/")
	authed.Use(middleware.APIKeyMiddleware(middleware.APIKeyConfig{HeaderName: "X-API-Key", ValidAPIKey: apiKey}))

	v1 := authed.Group("/api/v1")
	h := &Handlers{Services: svc}

	v1.GET("/folders", h.ListFolders)
	v1.POST("/folders", h.CreateFolder)
	v1.PUT("/folders/:name", h.RenameFolder)
	v1.DELETE("/folders/:name", h.DeleteFolder)

	v1.GET("/folders/:name/emails", h.ListEmails)
	v1.POST("/folders/:name/emails", h.AppendEmail)
	v1.GET("/folders/:name/emails/:uid", h.GetEmail)
	v1.PATCH("/folders/:name/emails/:uid", h.UpdateEmailFlags)
	v1.DELETE("/folders/:name/emails/:uid", h.DeleteEmail)
	v1.POST("/folders/:name/emails/:uid/move", h.MoveEmail)
	v1.GET("/folders/:name/emails/:uid/attachments.zip", h.DownloadAttachmentsZip)

	v1.POST("/search", h.Search)

	dashboard := authed.Group("/api/dashboard")
	dashboard.GET("/mcp/tools", dashboardToolsHandler(registry))

	mcpGroup := authed.Group("/")
	mcpGroup.Use(middleware.OriginCheck())
	transport.RegisterRoutes(mcpGroup)
}

func dashboardToolsHandler(registry *mcp.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		tools := registry.List()
		listed := make([]gin.H, 0, len(tools))
		for _, t := range tools {
			listed = append(listed, gin.H{
				"name":        t.Name,
				"description": t.Description,
				"inputSchema": t.InputSchema,
			})
		}
		c.JSON(200, gin.H{"tools": listed})
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
