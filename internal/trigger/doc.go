// Package trigger передаёт срабатывания исполнителям.
//
// Pool — две полосы воркеров (fast и slow) с ограниченными очередями.
// Задача, которая больше 10 раз за минуту отправлялась дольше 500ms,
// до конца минуты идёт через медленную полосу.
//
// ManualListener — приём ручных запусков из RabbitMQ.
package trigger
