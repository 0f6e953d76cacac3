package http

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/sensornode/pkg/log"
)

// Recover turns a panicking handler into a 500 response.
func Recover() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					log.Error(fmt.Errorf("%v", v), "Handler panicked", "path", r.URL.Path)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
