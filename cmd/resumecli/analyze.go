package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/parser"
	"resume-analyzer/internal/processor"
	"resume-analyzer/internal/types"
)

// fileResult 单个文件的解析结果
type fileResult struct {
	File   string                `json:"file"`
	Result *types.AnalysisResult `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
}

func runAnalyze(args []string) error {
	fs := pflag.NewFlagSet("analyze", pflag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	fields := fs.StringSlice("fields", processor.FieldNames(), "要提取的字段，逗号分隔")
	outDir := fs.StringP("out", "o", "", "结果输出目录，每个文件写入 <文件名>.json；为空时输出到标准输出")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("analyze 需要一个文件或目录参数")
	}
	if err := validateFields(*fields); err != nil {
		return err
	}

	files, err := collectFiles(fs.Arg(0))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%s 中没有可解析的 PDF/DOCX 文件", fs.Arg(0))
	}

	ctx := context.Background()
	cfg, store, cleanup, err := common.setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	components, err := processor.CreateFromConfig(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("初始化简历分析器失败: %w", err)
	}
	timeout := config.GetDuration(cfg.Analysis.AnalysisTimeout, 2*time.Minute)

	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0755); err != nil {
			return fmt.Errorf("创建输出目录失败: %w", err)
		}
	}

	var bar *progressbar.ProgressBar
	if len(files) > 1 {
		bar = getProgressBar(len(files), "解析简历...")
	}

	results := make([]fileResult, 0, len(files))
	failed := 0
	for _, file := range files {
		res := analyzeFile(ctx, components.Analyzer, file, *fields, timeout)
		if res.Error != "" {
			failed++
		}
		if *outDir != "" {
			if err := writeResult(*outDir, res); err != nil {
				return err
			}
		}
		results = append(results, res)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	if *outDir == "" {
		if err := printResults(results); err != nil {
			return err
		}
	}

	if failed > 0 {
		color.Yellow("完成 %d 个文件，其中 %d 个失败", len(files), failed)
	} else {
		color.Green("✓ 完成 %d 个文件", len(files))
	}
	return nil
}

func analyzeFile(ctx context.Context, analyzer *processor.Analyzer, path string, fields []string, timeout time.Duration) fileResult {
	res := fileResult{File: path}

	format, err := parser.ParseFormat(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := analyzer.AnalyzeDocument(ctx, types.Document{
		Name:   filepath.Base(path),
		Format: format,
		Data:   data,
	}, fields)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Result = result
	return res
}

// collectFiles 返回单个文件，或目录下（不递归）所有受支持格式的文件
func collectFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("无法访问 %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := parser.ParseFormat(entry.Name()); err != nil {
			continue
		}
		files = append(files, filepath.Join(path, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func validateFields(fields []string) error {
	for _, f := range fields {
		if !types.FieldName(strings.ToLower(strings.TrimSpace(f))).IsValid() {
			return fmt.Errorf("不支持的字段: %q，可选值: %s", f, strings.Join(processor.FieldNames(), ", "))
		}
	}
	return nil
}

func writeResult(dir string, res fileResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(res.File), filepath.Ext(res.File)) + ".json"
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return fmt.Errorf("写入结果失败: %w", err)
	}
	return nil
}

func printResults(results []fileResult) error {
	heading := color.New(color.FgCyan, color.Bold).PrintfFunc()
	for _, res := range results {
		heading("\n===== %s =====\n", res.File)
		if res.Error != "" {
			color.Red("解析失败: %s", res.Error)
			continue
		}
		data, err := json.MarshalIndent(res.Result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		for field, msg := range res.Result.Errors {
			color.Yellow("字段 %s 提取失败: %s", field, msg)
		}
	}
	return nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
