// Package api содержит HTTP API управления задачами.
//
// Структура:
//   - handler.go     — Handler с DI (JobStore, Dispatcher, logger)
//   - routes.go      — регистрация маршрутов
//   - middleware.go  — middleware (request id, logging, recovery)
//   - response.go    — унифицированные JSON-ответы и обработка ошибок
//   - dto.go         — Data Transfer Objects (request/response)
//   - job_handler.go — обработчики для /jobs
//
// Маршруты регистрируются на том же mux, что /healthz и /metrics.
// Ручной запуск через API идёт в пул срабатываний напрямую, минуя очередь
// triggers.manual.
package api
