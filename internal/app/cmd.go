package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーとして起動する。引数なしの既定値。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションを定期削除するワーカーとして起動する。
	CommandWorker Command = "worker"
	// CommandMigrate は未適用のマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandSeed は初期管理者ユーザーを投入して終了する。
	CommandSeed Command = "seed"
	// CommandHealthcheck はローカルのAPIサーバーの/healthを確認して終了する。
	// シェルのないdistrolessイメージのDocker HEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandSeed):        CommandSeed,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数からサブコマンドを決める。2番目以降の引数は無視する。
// 引数が空または未知のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
