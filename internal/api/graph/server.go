package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/planningpoker/config"
	"github.com/lvdashuaibi/planningpoker/internal/service"
)

// GraphQLServer GraphQL服务器
type GraphQLServer struct {
	schema   *graphql.Schema
	handler  *relay.Handler
	resolver *Resolver
	engine   *gin.Engine
	server   *http.Server
	logger   *zap.Logger
	path     string
}

// NewGraphQLServer 创建新的GraphQL服务器
func NewGraphQLServer(
	pollService *service.PollService,
	userService *service.UserService,
	cfg config.GraphQLConfig,
	logger *zap.Logger,
) *GraphQLServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := cfg.Path
	if path == "" {
		path = "/graphql"
	}

	resolver := NewResolver(pollService, userService)

	// 解析Schema并创建GraphQL实例
	schema := graphql.MustParseSchema(schemaString, resolver,
		graphql.UseFieldResolvers(),
	)

	s := &GraphQLServer{
		schema:   schema,
		handler:  &relay.Handler{Schema: schema},
		resolver: resolver,
		logger:   logger,
		path:     path,
	}
	s.engine = s.routes(userService, cfg.Playground)
	return s
}

func (s *GraphQLServer) routes(authenticator Authenticator, playground bool) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestIDMiddleware(), accessLogMiddleware(s.logger))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group(s.path, authMiddleware(authenticator, s.logger))
	api.POST("", gin.WrapH(s.handler))

	if playground {
		page := strings.ReplaceAll(playgroundHTML, "{{endpoint}}", s.path)
		engine.GET("/", func(c *gin.Context) {
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
		})
	}
	return engine
}

// Handler 返回HTTP处理器，测试中直接使用
func (s *GraphQLServer) Handler() http.Handler {
	return s.engine
}

// Start 启动GraphQL服务器，Shutdown后返回nil
func (s *GraphQLServer) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.server = &http.Server{Addr: addr, Handler: s.engine}

	s.logger.Info("GraphQL服务已启动",
		zap.String("endpoint", s.path), zap.String("addr", addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭，等待处理中的请求完成
func (s *GraphQLServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// playgroundHTML GraphQL Playground HTML
const playgroundHTML = `
<!DOCTYPE html>
<html>
<head>
  <meta charset=utf-8/>
  <meta name="viewport" content="user-scalable=no, initial-scale=1.0, minimum-scale=1.0, maximum-scale=1.0, minimal-ui">
  <title>Planning Poker GraphQL Playground</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/css/index.css" />
  <link rel="shortcut icon" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/favicon.png" />
  <script src="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/js/middleware.js"></script>
</head>
<body>
  <div id="root"></div>
  <script>window.addEventListener('load', function (event) {
      GraphQLPlayground.init(document.getElementById('root'), {
        endpoint: '{{endpoint}}',
        settings: { 'request.credentials': 'include' }
      })
    })</script>
</body>
</html>
`
