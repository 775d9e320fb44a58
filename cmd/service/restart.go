package service

var restartCmd = newVerbCmd("restart", "重启代理服务并确认其处于运行状态")
