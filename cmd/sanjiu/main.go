// sanjiu 命令行入口
// 核心以库形式使用，这里提供一个最小可用的命令行壳：
// 发起一只标的的辩论并把事件流打印到终端，或查看每日精选
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/run-bigpig/sanjiu/internal/adk"
	"github.com/run-bigpig/sanjiu/internal/adk/mcp"
	"github.com/run-bigpig/sanjiu/internal/app"
	"github.com/run-bigpig/sanjiu/internal/debate"
	"github.com/run-bigpig/sanjiu/internal/logger"
	"github.com/run-bigpig/sanjiu/internal/models"
	"github.com/run-bigpig/sanjiu/internal/pkg/paths"
	"github.com/run-bigpig/sanjiu/internal/quota"
)

var log = logger.New("Main")

var (
	flagUser  string
	flagPlan  string
	flagModel string
)

func main() {
	root := &cobra.Command{
		Use:           "sanjiu",
		Short:         "三位 AI 分析师的股票辩论室",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagUser, "user", "local", "用户标识")
	root.PersistentFlags().StringVar(&flagPlan, "plan", "free", "套餐 (free/pro/vip)")
	root.PersistentFlags().StringVar(&flagModel, "model", "", "模型名，覆盖 SANJIU_AI_MODEL")

	root.AddCommand(newDebateCmd(), newPicksCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}

// buildApp 组装核心绑定面：模型配置来自环境变量，用量落盘到用户目录
func buildApp() (*app.App, error) {
	aiCfg, err := aiConfigFromEnv()
	if err != nil {
		return nil, err
	}

	gen := adk.NewGenerator(aiCfg)
	if mcpCfgs := loadMCPConfigs(); len(mcpCfgs) > 0 {
		mgr := mcp.NewManager()
		if err := mgr.LoadConfigs(mcpCfgs); err != nil {
			log.Warn("load mcp configs error: %v", err)
		} else {
			gen.SetMCPManager(mgr)
		}
	}

	guard, err := quota.NewGuard(paths.GetUsageDir())
	if err != nil {
		return nil, fmt.Errorf("初始化用量闸门失败: %w", err)
	}

	return app.NewApp(gen, models.DefaultDebateConfig(), guard, quota.DefaultPlans()), nil
}

// aiConfigFromEnv 从环境变量读取 AI 配置
func aiConfigFromEnv() (*models.AIConfig, error) {
	apiKey := os.Getenv("SANJIU_AI_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("未设置 SANJIU_AI_KEY")
	}

	provider := models.AIProvider(os.Getenv("SANJIU_AI_PROVIDER"))
	if provider == "" {
		provider = models.AIProviderOpenAI
	}
	modelName := flagModel
	if modelName == "" {
		modelName = os.Getenv("SANJIU_AI_MODEL")
	}
	if modelName == "" {
		return nil, fmt.Errorf("未设置模型名 (--model 或 SANJIU_AI_MODEL)")
	}

	return &models.AIConfig{
		ID:        "default",
		Provider:  provider,
		ModelName: modelName,
		APIKey:    apiKey,
		BaseURL:   os.Getenv("SANJIU_AI_BASE_URL"),
	}, nil
}

// loadMCPConfigs 从数据目录读取 MCP 服务器配置，文件不存在则跳过
func loadMCPConfigs() []models.MCPServerConfig {
	data, err := os.ReadFile(paths.GetDataDir() + "/mcp_servers.json")
	if err != nil {
		return nil
	}
	var cfgs []models.MCPServerConfig
	if err := json.Unmarshal(data, &cfgs); err != nil {
		log.Warn("parse mcp_servers.json error: %v", err)
		return nil
	}
	return cfgs
}

func newDebateCmd() *cobra.Command {
	var rounds int
	cmd := &cobra.Command{
		Use:   "debate <symbol> <price>",
		Short: "对指定标的发起一场辩论",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var price float64
			if _, err := fmt.Sscanf(args[1], "%f", &price); err != nil {
				return fmt.Errorf("价格不合法: %s", args[1])
			}

			a, err := buildApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			go a.RunSweeper(ctx, 5*time.Minute)

			sessionID, err := a.StartDebate(args[0], price)
			if err != nil {
				return err
			}

			for round := 0; round < rounds; round++ {
				events, d, err := a.AdvanceRound(ctx, flagUser, flagPlan, sessionID)
				if err != nil {
					return fmt.Errorf("推进第 %d 轮失败: %w", round+1, err)
				}
				fmt.Printf("—— 第 %d 轮（今日已用 %d/%d）——\n", round+1, d.Used, d.Limit)
				done := printRound(events)
				if done {
					break
				}
			}

			return printSnapshot(a, sessionID)
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 1, "本次推进的轮数")
	return cmd
}

// printRound 打印一轮事件流，会话结束时返回 true
func printRound(events <-chan debate.Event) bool {
	done := false
	for ev := range events {
		switch ev.Type {
		case debate.EventMessage:
			m := ev.Message
			fmt.Printf("[%s] 评分 %d 目标价 %.2f\n%s\n\n", m.PersonaName, m.Score, m.TargetPrice, m.Content)
		case debate.EventPersonaError:
			fmt.Printf("[%s] 本轮发言失败: %s\n\n", ev.PersonaError.Persona, ev.PersonaError.Reason)
		case debate.EventRoundComplete:
			s := ev.RoundComplete
			fmt.Printf("本轮结束：共识评分 %.2f（收敛=%v）\n\n", s.Consensus.Score, s.Consensus.HasConsensus)
			done = s.SessionComplete
		case debate.EventFatalError:
			fmt.Printf("辩论中止: %s\n", ev.FatalReason)
			return false
		}
	}
	return done
}

// printSnapshot 打印会话收尾快照
func printSnapshot(a *app.App, sessionID string) error {
	c, err := a.Consensus(sessionID)
	if err != nil {
		return err
	}
	if !c.Valid {
		fmt.Println("尚无有效共识")
		return nil
	}
	tg, _ := a.Targets(sessionID)
	fmt.Printf("共识评分 %.2f 收敛=%v 目标价均值 %.2f\n", c.Score, c.HasConsensus, tg.Mean)
	return nil
}

func newPicksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "picks",
		Short: "查看每日 Top5 精选",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			result, d, err := a.DailyPicks(flagUser, flagPlan)
			if err != nil {
				return err
			}
			fmt.Printf("候选 %d 只，其中 %d 只一致看多（今日已用 %d/%d）\n",
				result.TotalCandidates, result.UnanimousCount, d.Used, d.Limit)
			for _, e := range result.Entries {
				fmt.Printf("%d. %s %s 均分 %.1f — %s\n", e.Rank, e.Symbol, e.Name, e.AvgScore, e.Rationale)
			}
			return nil
		},
	}
}
