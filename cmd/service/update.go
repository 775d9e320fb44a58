package service

var updateCmd = newVerbCmd("update", "升级代理程序到最新版本")

func init() {
	updateCmd.Aliases = []string{"upgrade"}
	updateCmd.Long = `查询最新发布版本, 与已安装版本比较; 已是最新时不做任何操作,
否则先下载, 再停止服务, 替换程序, 启动并确认服务运行. 旧程序不保留`
}
