// Package cli реализует команды cronwheel-scheduler.
//
// # Команды
//
//   - run      — узел планировщика: scanner, dispatcher, пул передачи,
//     приём ручных запусков, /healthz и /metrics
//   - migrate  — создание таблиц job_schedules и scheduler_locks
//   - next     — предпросмотр ближайших срабатываний выражения, без БД
//   - job      — add, show, start, stop, trigger
//
// # Конфигурация
//
// Каждая команда читает config.Load с глобальными флагами --env-file и
// --config. Флаг --json переключает вывод данных на JSON.
//
// # Output
//
// Данные выводятся в stdout (таблица или JSON), сообщения в stderr.
// Это позволяет использовать pipe: cronwheel-scheduler next "*/5 * * * * ?" --json | jq .
package cli
