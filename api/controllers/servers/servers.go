package servers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/gamehost-backend/api/middleware"
	"github.com/angelmondragon/gamehost-backend/api/responses"
	"github.com/angelmondragon/gamehost-backend/api/validators"
	internalservers "github.com/angelmondragon/gamehost-backend/internal/servers"
	"github.com/angelmondragon/gamehost-backend/pkg/db/models"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
)

type suspendRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type statusResponse struct {
	ID         uuid.UUID          `json:"id"`
	ServerName string             `json:"server_name"`
	Status     enums.ServerStatus `json:"status"`
}

func toStatusResponse(server *models.Server) statusResponse {
	return statusResponse{ID: server.ID, ServerName: server.ServerName, Status: server.Status}
}

func List(svc internalservers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListServers(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func Summary(svc internalservers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// Detail includes live panel data when the panel answers in time.
func Detail(svc internalservers.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwnedServer(logg, func(w http.ResponseWriter, r *http.Request, userID, serverID uuid.UUID) {
		server, err := svc.GetServer(r.Context(), userID, serverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, server)
	})
}

func Stats(svc internalservers.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwnedServer(logg, func(w http.ResponseWriter, r *http.Request, userID, serverID uuid.UUID) {
		usage, err := svc.GetResourceUsage(r.Context(), userID, serverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, usage)
	})
}

func PanelLink(svc internalservers.Service, logg *logger.Logger) http.HandlerFunc {
	return withOwnedServer(logg, func(w http.ResponseWriter, r *http.Request, userID, serverID uuid.UUID) {
		link, err := svc.GetPanelLink(r.Context(), userID, serverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, link)
	})
}

func AdminSuspend(svc internalservers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serverID, err := validators.ParseUUIDParam(r, "serverId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req suspendRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		server, err := svc.Suspend(r.Context(), serverID, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toStatusResponse(server))
	}
}

func AdminUnsuspend(svc internalservers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serverID, err := validators.ParseUUIDParam(r, "serverId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		server, err := svc.Unsuspend(r.Context(), serverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toStatusResponse(server))
	}
}

func withOwnedServer(logg *logger.Logger, fn func(http.ResponseWriter, *http.Request, uuid.UUID, uuid.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		serverID, err := validators.ParseUUIDParam(r, "serverId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fn(w, r, userID, serverID)
	}
}
