// @title Lesson Engine 后端 API
// @version 1.0
// @description 课程测验引擎：抽题、评分、作答次数控制与单设备登录。

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"os"

	"lesson_engine_backend/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
