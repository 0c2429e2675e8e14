package jobs

import logx "schoolbell/pkg/logx"

var logxNop = logx.Nop()
