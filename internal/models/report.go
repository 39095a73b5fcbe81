package models

import "time"

type Report struct {
	ID     int64
	Source string // "News"
	Date   time.Time
	URL    string
	Title  string
	Text   string // cleaned, lowercase
}
