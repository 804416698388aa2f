package handler

import (
	"net/http"
	"sort"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeSuccess writes {"success":true}.
func writeSuccess(w http.ResponseWriter) {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e)
}

// writeData writes {"success":true,"data":<data>} with data produced by fn.
func writeData(w http.ResponseWriter, fn func(e *jx.Encoder)) {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.FieldStart("data")
	fn(e)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e)
}

// writeFieldErrors writes {"errors":{field:[message,...]}} with fields in
// stable order.
func writeFieldErrors(w http.ResponseWriter, status int, fields map[string][]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("errors")
	e.ObjStart()
	for _, k := range keys {
		e.FieldStart(k)
		e.ArrStart()
		for _, msg := range fields[k] {
			e.Str(msg)
		}
		e.ArrEnd()
	}
	e.ObjEnd()
	e.ObjEnd()
	writeJSON(w, status, e)
}

// fieldError is shorthand for a single-field error envelope.
func fieldError(w http.ResponseWriter, status int, field, message string) {
	writeFieldErrors(w, status, map[string][]string{field: {message}})
}

// internalError logs the failure and responds with a bare 500 envelope.
// Internals are never exposed in the body.
func internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	zctx.From(r.Context()).Error(msg, zap.Error(err))
	fieldError(w, http.StatusInternalServerError, "server", "internal server error")
}
