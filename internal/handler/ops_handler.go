package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/deepthoughts/internal/auth"
	"github.com/hitoshi/deepthoughts/internal/middleware"
	"github.com/hitoshi/deepthoughts/internal/model"
	"github.com/hitoshi/deepthoughts/internal/resolver"
)

// maxOpsBodyBytes は操作エンドポイントのリクエストボディ上限。
const maxOpsBodyBytes = 1 << 20

// Dispatcher は操作名で解決処理を呼び出すインターフェース。
// resolver.Serviceが実装する。
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args resolver.Arguments, ac model.AuthContext) (any, error)
}

// OpsHandler は操作名を指定して解決処理を呼び出すHTTPハンドラー。
type OpsHandler struct {
	dispatcher Dispatcher
}

// NewOpsHandler はOpsHandlerを生成する。
func NewOpsHandler(dispatcher Dispatcher) *OpsHandler {
	return &OpsHandler{dispatcher: dispatcher}
}

// Invoke は操作を実行する。
// POST /api/ops/{operation}
//
// ボディは引数のJSONオブジェクト。空のボディは引数なしとして扱う。
func (h *OpsHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "operation")

	var args resolver.Arguments
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOpsBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, model.NewInvalidRequestError("引数のJSONを解析できません"))
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), name, args, auth.FromContext(r.Context()))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{Data: toResponse(result)})
}

// ListOperations は利用可能な操作の一覧を返す。
// GET /api/ops
func (h *OpsHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	type operationResponse struct {
		Name       string `json:"name"`
		Kind       string `json:"kind"`
		Credential bool   `json:"credential"`
	}
	ops := resolver.Operations()
	out := make([]operationResponse, 0, len(ops))
	for _, op := range ops {
		out = append(out, operationResponse{Name: op.Name, Kind: op.Kind.String(), Credential: op.Credential})
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: out})
}
