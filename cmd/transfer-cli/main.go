package main

import "evm-transfer/cmd/transfer-cli/cmd"

func main() {
	cmd.Execute()
}
