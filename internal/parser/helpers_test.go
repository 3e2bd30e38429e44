package parser

import "time"

const defaultTestTimeout = 5 * time.Second
