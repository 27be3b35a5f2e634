// Package config загружает конфигурацию scheduler.
//
// Порядок: значения по умолчанию, затем YAML-файл (--config),
// затем переменные окружения. Файл .env подхватывается автоматически
// и не перезаписывает уже заданные переменные.
package config
