package web

import _ "embed"

// Index страница Telegram WebApp, если в конфиге не задан свой index_file.
//
//go:embed index.html
var Index []byte
