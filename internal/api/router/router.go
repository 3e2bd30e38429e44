package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"resume-analyzer/internal/api/handler"
	"resume-analyzer/internal/constants"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, resumeHandler *handler.ResumeHandler) {
	api := h.Group("/api/v1")

	api.POST("/resume/parse", resumeHandler.HandleParse)
	api.GET("/fields", resumeHandler.HandleFields)

	// 添加健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok", "version": constants.AppVersion})
	})

	// 兼容旧版客户端
	h.POST("/parse-resume/", resumeHandler.HandleParse)
}
