// Package web は HTML テンプレートと HTTP まわりの共通部品を提供します。
package web

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Templates は埋め込みテンプレートをすべて読み込みます。
// テンプレート名はファイル名（例: "login.tmpl"）です。
func Templates() (*template.Template, error) {
	return template.New("").ParseFS(templateFS, "templates/*.tmpl")
}

// LoadTemplates はルーターに HTML テンプレートを登録します。
func LoadTemplates(router *gin.Engine) error {
	tmpl, err := Templates()
	if err != nil {
		return err
	}
	router.SetHTMLTemplate(tmpl)
	return nil
}

// MethodOverride は POST リクエストのクエリ `_method` を見て HTTP メソッドを差し替えます。
// HTML フォームから DELETE /logout を呼ぶために使います。
// gin のミドルウェアはルーティング後に動くため、エンジンの外側で包みます。
func MethodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			switch method := strings.ToUpper(r.URL.Query().Get("_method")); method {
			case http.MethodDelete, http.MethodPut, http.MethodPatch:
				r.Method = method
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger はリクエストごとのメタ情報をログに出力します。
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if logger == nil {
			return
		}
		logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("client_ip", c.ClientIP()),
			slog.String("latency", time.Since(start).String()),
		)
	}
}
