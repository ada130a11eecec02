package handler

import (
	"encoding/json"
	"net/http"
)

// writeJSON — единый способ отдачи ответов всеми обработчиками.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError отдает статус-кодированное JSON-тело ошибки.
// Детали внутренних ошибок остаются в логах, клиенту — общее сообщение.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
