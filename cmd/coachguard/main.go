package main

func main() {
	initializeLogger()
	Execute()
}
