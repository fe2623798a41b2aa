package httpadapter

import (
	"net/http"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrIndexNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrRetrieval), domain.IsKind(err, domain.ErrRerank):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
