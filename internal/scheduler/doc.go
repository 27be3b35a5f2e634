// Package scheduler реализует распределённый планировщик срабатываний задач.
//
// Scheduler решает, когда должно произойти очередное срабатывание каждой
// задачи, и передаёт его в Trigger ровно один раз, даже если запущено
// несколько узлов scheduler на одном хранилище.
//
// Структура:
//   - scheduler.go  — Scheduler, интерфейсы коллабораторов, Start/Stop
//   - scanner.go    — цикл сканирования (ScanOnce, классификация задач)
//   - dispatcher.go — цикл кольца (DispatchTick)
//   - ring.go       — TimeRing: 60 слотов по секунде минуты
//   - cron.go       — вычисление следующего срабатывания (NextFireAfter)
//   - misfire.go    — политика пропущенных срабатываний
//
// Классификация задачи при сканировании (LOOKAHEAD = 5s):
//
//	now > next + LOOKAHEAD       — misfire: по стратегии сработать сейчас или пропустить
//	next <= now <= next + LOOKAHEAD — сработать сейчас; если новое next тоже в окне — в кольцо
//	now < next <= now + LOOKAHEAD  — в кольцо на секунду next
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Store:   jobRepo,
//	    Lock:    scanLock,
//	    Trigger: pool,
//	    Logger:  logger,
//	})
//	if err != nil {
//	    return err
//	}
//	sched.Start(ctx)
//	defer sched.Stop()
//
// Межузловая блокировка:
//
// Scheduler не выбирает лидера. Каждый цикл сканирования выполняется
// под ScanLock (строка в Postgres с FOR UPDATE или lease в Redis),
// dispatcher работает без блокировки.
package scheduler
