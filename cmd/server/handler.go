package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"sehlabs.com/midas/internal/mvcc"
)

func speakPlainTextTo(w http.ResponseWriter) {
	w.Header().Add("Content-Type", "text/plain")
}

func respondWithError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, mvcc.ErrWriteConflict):
		statusCode = http.StatusConflict
	case errors.Is(err, mvcc.ErrValueNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, mvcc.ErrInvalidTx):
		statusCode = http.StatusInternalServerError
	}
	speakPlainTextTo(w)
	w.WriteHeader(statusCode)
	fmt.Fprintln(w, err)
}

const pathPrefix = "/record/"

func getTargetKey(w http.ResponseWriter, req *http.Request) ([]byte, bool) {
	key, ok := strings.CutPrefix(req.URL.Path, pathPrefix)
	if ok && len(key) > 0 {
		return []byte(key), true
	}
	speakPlainTextTo(w)
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintln(w, "URL path must contain a nonempty key")
	return nil, false
}

// handleGet runs a single-statement, read-only transaction: begin, read,
// commit (or, on a miss, the engine has already aborted the transaction for
// us — Read aborts the transaction on ErrValueNotFound as a side effect).
func handleGet(w http.ResponseWriter, req *http.Request, engine *mvcc.Engine) {
	key, ok := getTargetKey(w, req)
	if !ok {
		return
	}
	tx := engine.Begin()
	value, err := engine.Read(tx, key)
	if errors.Is(err, mvcc.ErrValueNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		respondWithError(w, err)
		return
	}
	if err := engine.Commit(tx); err != nil {
		respondWithError(w, err)
		return
	}
	speakPlainTextTo(w)
	if _, err := w.Write(value); err == nil {
		w.Write([]byte{'\n'})
	}
}

func readFormValue(req *http.Request) (string, error) {
	if err := req.ParseForm(); err != nil {
		return "", err
	}
	return req.FormValue("value"), nil
}

// handlePut and handlePost both stage a write and commit it in one
// transaction. Write stages an insert or an update depending on the key's
// history, so the two HTTP verbs differ only in their success status code.
// A write against a version another transaction is mid-claim on fails with
// ErrValueNotFound and surfaces as 404; a conflicting insert detected at
// commit time surfaces as 409.
func handlePut(w http.ResponseWriter, req *http.Request, engine *mvcc.Engine) {
	stageWrite(w, req, engine, http.StatusOK)
}

func handlePost(w http.ResponseWriter, req *http.Request, engine *mvcc.Engine) {
	stageWrite(w, req, engine, http.StatusCreated)
}

func stageWrite(w http.ResponseWriter, req *http.Request, engine *mvcc.Engine, successStatus int) {
	key, ok := getTargetKey(w, req)
	if !ok {
		return
	}
	value, err := readFormValue(req)
	if err != nil {
		speakPlainTextTo(w)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Failed to parse HTTP form: %v", err)
		return
	}

	tx := engine.Begin()
	if err := engine.Write(tx, key, []byte(value)); err != nil {
		respondWithError(w, err)
		return
	}
	if err := engine.Commit(tx); err != nil {
		respondWithError(w, err)
		return
	}
	w.WriteHeader(successStatus)
}

func handleDelete(w http.ResponseWriter, req *http.Request, engine *mvcc.Engine) {
	key, ok := getTargetKey(w, req)
	if !ok {
		return
	}
	tx := engine.Begin()
	if err := engine.Drop(tx, key); err != nil {
		respondWithError(w, err)
		return
	}
	if err := engine.Commit(tx); err != nil {
		respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func makeHandler(engine *mvcc.Engine) http.Handler {
	var mux http.ServeMux
	mux.Handle(pathPrefix,
		http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			defer io.Copy(io.Discard, req.Body)
			switch req.Method {
			case http.MethodGet:
				handleGet(w, req, engine)
			case http.MethodPost:
				handlePost(w, req, engine)
			case http.MethodPut:
				handlePut(w, req, engine)
			case http.MethodDelete:
				handleDelete(w, req, engine)
			default:
				speakPlainTextTo(w)
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprintf(w, "Request uses disallowed HTTP method %q\n", req.Method)
			}
		}))
	return &mux
}
