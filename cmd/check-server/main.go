package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/dwbridge/internal/client"
	"github.com/yourusername/dwbridge/internal/core"
	"github.com/yourusername/dwbridge/internal/entity"
)

// DW Spectrum 서버 연결을 검증하는 일회성 도구.
// 로그인 후 시스템/카메라/사용자/라이선스 요약을 출력합니다.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "설정 파일 경로")
	timeout := flag.Int("timeout", 30, "전체 검사 제한 시간 (초)")
	flag.Parse()

	config, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	c := client.New(client.Config{
		Host:      config.DW.Host,
		Port:      config.DW.Port,
		SSL:       config.DW.SSL,
		VerifySSL: config.DW.VerifySSL,
		Username:  config.DW.Username,
		Password:  config.DW.Password,
		Logger:    zap.NewNop(),
	})

	fmt.Printf("Connecting to %s:%d ...\n", config.DW.Host, config.DW.Port)

	if _, err := c.Login(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
		os.Exit(1)
	}
	defer c.Logout(context.Background())

	fmt.Println("Login OK")

	info, err := c.GetSystemInfo(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get system info: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("System:   %s (version %s)\n", info.Name, info.Version)

	cameras, err := c.GetCameras(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list cameras: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Cameras:  %d\n", len(cameras))
	for _, cam := range cameras {
		status := "offline"
		if cam.Online() {
			status = "online"
		}
		fmt.Printf("  - %s (%s, %s)\n", cam.DisplayName(), cam.ID, status)
	}

	users, err := c.GetUsers(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list users: %v\n", err)
	} else {
		fmt.Printf("Users:    %d\n", len(users))
	}

	summary, err := c.GetLicenseSummary(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get license summary: %v\n", err)
	} else {
		total, used, available := entity.ExtractLicenseCounts(summary)
		fmt.Printf("Licenses: total=%s used=%s available=%s\n",
			formatCount(total), formatCount(used), formatCount(available))
	}

	fmt.Println("Server check passed")
}

func formatCount(v *int) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *v)
}
