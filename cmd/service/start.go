package service

var startCmd = newVerbCmd("start", "启动代理服务并确认其处于运行状态")
