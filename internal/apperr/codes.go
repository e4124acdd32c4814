package apperr

import "net/http"

type Code string

const (
	CodeInvalidRequest            Code = "INVALID_REQUEST"
	CodeUnauthorized              Code = "UNAUTHORIZED"
	CodeNotFound                  Code = "NOT_FOUND"
	CodeConflict                  Code = "CONFLICT"
	CodeUpstreamStorageFailure    Code = "UPSTREAM_STORAGE_FAILURE"
	CodePersistenceFailure        Code = "PERSISTENCE_FAILURE"
	CodeDeliveryBestEffortFailure Code = "DELIVERY_BEST_EFFORT_FAILURE"
	CodeInternal                  Code = "INTERNAL"
)

var httpStatus = map[Code]int{
	CodeInvalidRequest:            http.StatusBadRequest,
	CodeUnauthorized:              http.StatusUnauthorized,
	CodeNotFound:                  http.StatusNotFound,
	CodeConflict:                  http.StatusConflict,
	CodeUpstreamStorageFailure:    http.StatusBadGateway,
	CodePersistenceFailure:        http.StatusInternalServerError,
	CodeDeliveryBestEffortFailure: http.StatusInternalServerError,
	CodeInternal:                  http.StatusInternalServerError,
}
