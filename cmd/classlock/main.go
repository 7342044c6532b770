// classlock is the teacher's command-line client for locking classroom tablets to an app.
package main

func main() {
	Execute()
}
