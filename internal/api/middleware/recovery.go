package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"crossarb/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers
//
// Перехватывает panic в любом handler, логирует stack trace
// и возвращает клиенту 500 вместо падения всего процесса.
func Recovery(next http.Handler) http.Handler {
	log := utils.Named("HTTP")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Errorw("panic in handler",
					"error", err,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				http.Error(
					w,
					fmt.Sprintf("Internal Server Error: %v", err),
					http.StatusInternalServerError,
				)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
