package httpapi

import (
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const protobufContentType = "application/x-protobuf"

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// wantsProtobuf reports whether the client asked for a protobuf body.
func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, protobufContentType) ||
		strings.Contains(accept, "application/protobuf")
}

// respond writes v as JSON, or as the structpb form built by toStruct when
// the client negotiated protobuf.
func respond[T any](w http.ResponseWriter, r *http.Request, status int, v T, toStruct func(T) (*structpb.Struct, error)) {
	if wantsProtobuf(r) {
		msg, err := toStruct(v)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "proto conversion error")
			return
		}
		writeProto(w, status, msg)
		return
	}
	writeJSON(w, status, v)
}

func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", protobufContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}
