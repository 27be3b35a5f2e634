// Package lock предоставляет блокировки цикла сканирования.
//
// Реализации:
//   - redis.go — lease в Redis (SET NX PX + Lua), для нескольких узлов
//   - local.go — мьютекс внутри процесса, для одного узла и тестов
//
// Блокировка на строке Postgres (SELECT ... FOR UPDATE) живёт в пакете repo,
// потому что разделяет транзакцию с хранилищем задач.
//
// Все реализации блокируются до захвата, а не завершаются сразу:
// узел, проигравший гонку, просто ждёт своей очереди.
package lock
