package http

import (
	"log/slog"
	"net/http"
	"strings"
)

// RouterConfig lists the handlers to mount. Nil handlers leave their routes
// unregistered.
type RouterConfig struct {
	Auth          *AuthHandler
	Events        *EventHandler
	Calendar      *CalendarHandler
	Inventory     *InventoryHandler
	Notifications *NotificationHandler
	Middleware    []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Auth != nil {
		mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.CreateSession(w, r)
		})
		mux.HandleFunc("/sessions/current", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, http.MethodDelete)
				return
			}
			cfg.Auth.DeleteCurrentSession(w, r)
		})
	}

	if cfg.Events != nil {
		mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Events.List(w, r)
			case http.MethodPost:
				cfg.Events.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/events/", func(w http.ResponseWriter, r *http.Request) {
			id, action := splitResource(r.URL.Path, "/events/")
			switch {
			case id == "":
				http.NotFound(w, r)
			case action == "move":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Events.Move(w, r, id)
			case action != "":
				http.NotFound(w, r)
			default:
				switch r.Method {
				case http.MethodGet:
					cfg.Events.Get(w, r, id)
				case http.MethodPut:
					cfg.Events.Update(w, r, id)
				case http.MethodDelete:
					cfg.Events.Delete(w, r, id)
				default:
					methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
				}
			}
		})
	}

	if cfg.Calendar != nil {
		get := func(fn http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				fn(w, r)
			}
		}
		mux.HandleFunc("/calendar", get(cfg.Calendar.View))
		mux.HandleFunc("/calendar/navigate", get(cfg.Calendar.Navigate))
		mux.HandleFunc("/calendar/time-options", get(cfg.Calendar.TimeOptions))
		mux.HandleFunc("/calendar/new-event", get(cfg.Calendar.NewEvent))
		mux.HandleFunc("/calendar/calendar.ics", get(cfg.Calendar.Feed))
		mux.HandleFunc("/calendar/import", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Calendar.Import(w, r)
		})
	}

	if cfg.Inventory != nil {
		mux.HandleFunc("/inventory", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Inventory.List(w, r)
			case http.MethodPost:
				cfg.Inventory.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/inventory/categories", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Inventory.Categories(w, r)
		})
		mux.HandleFunc("/inventory/", func(w http.ResponseWriter, r *http.Request) {
			id, action := splitResource(r.URL.Path, "/inventory/")
			switch {
			case id == "":
				http.NotFound(w, r)
			case action == "quantity":
				if r.Method != http.MethodPut {
					methodNotAllowed(w, http.MethodPut)
					return
				}
				cfg.Inventory.SetQuantity(w, r, id)
			case action != "":
				http.NotFound(w, r)
			default:
				switch r.Method {
				case http.MethodGet:
					cfg.Inventory.Get(w, r, id)
				case http.MethodPut:
					cfg.Inventory.Update(w, r, id)
				case http.MethodDelete:
					cfg.Inventory.Delete(w, r, id)
				default:
					methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
				}
			}
		})
	}

	if cfg.Notifications != nil {
		mux.HandleFunc("/notifications", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Notifications.List(w, r)
		})
		mux.HandleFunc("/notifications/read-all", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Notifications.MarkAllRead(w, r)
		})
		mux.HandleFunc("/notifications/", func(w http.ResponseWriter, r *http.Request) {
			id, action := splitResource(r.URL.Path, "/notifications/")
			switch {
			case id == "":
				http.NotFound(w, r)
			case action == "read":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Notifications.MarkRead(w, r, id)
			case action != "":
				http.NotFound(w, r)
			case r.Method == http.MethodDelete:
				cfg.Notifications.Delete(w, r, id)
			default:
				methodNotAllowed(w, http.MethodDelete)
			}
		})
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

// Protect requires a session on every request except those whose path is
// listed in public.
func Protect(router http.Handler, validator SessionValidator, logger *slog.Logger, public ...string) http.Handler {
	protected := RequireSession(validator, logger)(router)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, path := range public {
			if strings.EqualFold(r.URL.Path, path) {
				router.ServeHTTP(w, r)
				return
			}
		}
		protected.ServeHTTP(w, r)
	})
}

// splitResource turns "/events/abc/move" into ("abc", "move").
func splitResource(path, prefix string) (id, action string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	id, action, _ = strings.Cut(rest, "/")
	return id, action
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
