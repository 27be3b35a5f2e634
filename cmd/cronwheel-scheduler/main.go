// Cronwheel Scheduler — узел распределённого планировщика задач.
//
// Использование:
//
//	cronwheel-scheduler [--config FILE] [--env-file FILE] [--json] <command> [flags]
//
// Команды:
//
//	run      Запустить узел (scanner, кольцо, пул срабатываний, HTTP)
//	migrate  Создать таблицы задач и блокировок
//	next     Показать ближайшие срабатывания выражения
//	job      Управление задачами (add, show, start, stop, trigger)
package main

import (
	"fmt"
	"os"

	"github.com/shaiso/Cronwheel/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
