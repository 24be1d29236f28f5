package main

import (
	_ "time/tzdata" // calendar.timezone must resolve on hosts without zoneinfo
)

func main() {
	Execute()
}
