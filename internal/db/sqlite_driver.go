package db

import (
	"database/sql"
	"fmt"
	"time"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

// SQLiteDriverName is SQLCipher plus the notedesk SQL functions below.
const SQLiteDriverName = "sqlite3_notedesk"

// CalendarDayLayout is the format calendar_day() returns and day filters take.
const CalendarDayLayout = time.DateOnly

// sqlFuncs are registered as pure functions on every new connection.
var sqlFuncs = map[string]any{
	// calendar_day(unix_seconds, offset_minutes_east)
	"calendar_day": CalendarDay,
}

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			for name, fn := range sqlFuncs {
				if err := conn.RegisterFunc(name, fn, true); err != nil {
					return fmt.Errorf("register %s: %w", name, err)
				}
			}
			return nil
		},
	})
}

// CalendarDay is the YYYY-MM-DD a client offsetMinutes east of UTC sees at unix.
func CalendarDay(unix, offsetMinutes int64) string {
	shifted := unix + offsetMinutes*60
	return time.Unix(shifted, 0).UTC().Format(CalendarDayLayout)
}
