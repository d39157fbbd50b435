package relay

import (
	"net/http"
	"runtime"

	"github.com/Tsukikage7/kafkalog/logger"
)

const stackSize = 64 << 10

// recoverHandler 捕获 handler 中的 panic，记录堆栈并返回 500.
func recoverHandler(log logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				stack := make([]byte, stackSize)
				stack = stack[:runtime.Stack(stack, false)]

				log.With(
					logger.Any("panic", p),
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.String("stack", string(stack)),
				).Error("[Relay] http panic recovered")

				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
